package credential

import (
	"github.com/adsboard/adsboard/internal/credential/repository"
	"github.com/adsboard/adsboard/internal/credential/service"
	"go.uber.org/fx"
)

var Module = fx.Module("credential",
	fx.Provide(
		repository.New,
		service.NewProviderClient,
		service.NewRefresher,
		service.New,
	),
)
