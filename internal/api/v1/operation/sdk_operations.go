package operation

import "brandconfig/internal/api/v1/dto"

// SDK Operations

type ListBrandsInput struct{}

type ListBrandsOutput struct {
	Body []dto.SDKBrandDTO `json:"body"`
}

type ListConfigsInput struct {
	BrandName string `path:"brandName" doc:"Brand name"`
}

type ListConfigsOutput struct {
	Body []dto.SDKConfigSummaryDTO `json:"body"`
}

type GetConfigInput struct {
	BrandName  string `path:"brandName" doc:"Brand name"`
	ConfigName string `path:"configName" doc:"Config name"`
}

type GetConfigOutput struct {
	CacheControl string           `header:"Cache-Control"`
	Body         dto.SDKConfigDTO `json:"body"`
}

type GetSchemaInput struct {
	BrandName  string `path:"brandName" doc:"Brand name"`
	ConfigName string `path:"configName" doc:"Config name"`
}

type GetSchemaOutput struct {
	Body dto.SDKSchemaDTO `json:"body"`
}

type IntrospectInput struct{}

type IntrospectOutput struct {
	Body []dto.SDKIntrospectBrandDTO `json:"body"`
}
