package dto

// BrandCreateDTO is used for incoming brand creation requests
type BrandCreateDTO struct {
	Name string `json:"name" validate:"required,max=200"`
}
