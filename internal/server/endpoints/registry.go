package endpoints

import "github.com/saitejavellanki/mathres/internal/api"

// Prefix is where every route is mounted.
const Prefix = "/mathres"

// All returns all endpoint instances.
func All() []api.Endpoint {
	return []api.Endpoint{
		&IndexEndpoint{},
		&HealthEndpoint{},
		&StatusEndpoint{},

		&RestructureEndpoint{},
		&EnqueueEndpoint{},
		&ExtractEndpoint{},
		&LLMCallsEndpoint{},

		&SwaggerEndpoint{},
	}
}
