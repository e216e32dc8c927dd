package audit

import (
	"github.com/adsboard/adsboard/internal/audit/repository"
	"github.com/adsboard/adsboard/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit",
	fx.Provide(repository.New),
	fx.Provide(service.New),
)
