package router

import (
	"net/http"
	"os"
	"strings"

	"brandconfig/internal/api/v1/handler"
	"brandconfig/internal/config"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

const sdkPrefix = "/sdk"

// SetupHumaAPI creates the Huma API for the SDK surface. The returned router
// is meant to be mounted at /sdk.
func SetupHumaAPI(
	cfg *config.Config,
	apiKeyMiddleware func(http.Handler) http.Handler,
	rateLimit func(http.Handler) http.Handler,
	logger zerolog.Logger,
) (*chi.Mux, huma.API) {
	chiRouter := chi.NewRouter()

	chiRouter.Use(func(next http.Handler) http.Handler {
		protected := apiKeyMiddleware(rateLimit(next))
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Skip all auth for OpenAPI docs endpoint
			switch strings.TrimPrefix(r.URL.Path, sdkPrefix) {
			case "/openapi.json", "/openapi.yaml", "/docs":
				next.ServeHTTP(w, r)
				return
			}
			if strings.HasPrefix(strings.TrimPrefix(r.URL.Path, sdkPrefix), "/schemas") {
				next.ServeHTTP(w, r)
				return
			}
			protected.ServeHTTP(w, r)
		})
	})

	// Get version from environment or default to development
	version := os.Getenv("GIT_COMMIT_SHA")
	if version == "" {
		version = "development"
	}

	humaConfig := huma.DefaultConfig("Brand Config SDK API", version)
	humaConfig.Info.Description = "Read-only access to brand configs for API key holders"
	humaConfig.Servers = []*huma.Server{{URL: sdkPrefix}}
	humaConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"apiKey": {Type: "apiKey", In: "header", Name: "X-API-Key"},
	}

	api := humachi.New(chiRouter, humaConfig)

	logger.Info().Str("version", version).Msg("Huma API initialized for /sdk")
	return chiRouter, api
}

// RegisterRoutes registers all Huma operations
func RegisterRoutes(api huma.API, sdkHandler *handler.SDKHandler, logger zerolog.Logger) {
	security := []map[string][]string{{"apiKey": {}}}

	huma.Register(api, huma.Operation{
		OperationID: "sdkListBrands",
		Method:      http.MethodGet,
		Path:        "/brands",
		Summary:     "List brands",
		Description: "Lists the company's brands with config counts. Requires read:brands.",
		Tags:        []string{"sdk"},
		Security:    security,
	}, sdkHandler.ListBrands)

	huma.Register(api, huma.Operation{
		OperationID: "sdkListConfigs",
		Method:      http.MethodGet,
		Path:        "/brands/{brandName}/configs",
		Summary:     "List configs of a brand",
		Description: "Lists config definitions of a brand. Requires read:configs.",
		Tags:        []string{"sdk"},
		Security:    security,
	}, sdkHandler.ListConfigs)

	huma.Register(api, huma.Operation{
		OperationID: "sdkGetConfig",
		Method:      http.MethodGet,
		Path:        "/brands/{brandName}/configs/{configName}",
		Summary:     "Get a config",
		Description: "Returns the active version of a config, or its latest version when none is active.",
		Tags:        []string{"sdk"},
		Security:    security,
	}, sdkHandler.GetConfig)

	huma.Register(api, huma.Operation{
		OperationID: "sdkGetSchema",
		Method:      http.MethodGet,
		Path:        "/brands/{brandName}/configs/{configName}/schema",
		Summary:     "Get a config schema",
		Description: "Returns the JSON schema and UI schema stored with the served version.",
		Tags:        []string{"sdk"},
		Security:    security,
	}, sdkHandler.GetSchema)

	huma.Register(api, huma.Operation{
		OperationID: "sdkIntrospect",
		Method:      http.MethodGet,
		Path:        "/introspect",
		Summary:     "Introspect",
		Description: "Describes every brand and config with the top-level keys of each served value.",
		Tags:        []string{"sdk"},
		Security:    security,
	}, sdkHandler.Introspect)

	logger.Info().Int("total_operations", 5).Msg("SDK operations registered")
}
