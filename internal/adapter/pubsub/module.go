package pubsub

import (
	infrapubsub "github.com/hadlocna/PaperDrop/infra/pubsub"
	"go.uber.org/fx"
)

var Module = fx.Module("pubsub-adapter",
	fx.Provide(func(p infrapubsub.Provider) EventDispatcher {
		return NewEventDispatcher(p.Publisher())
	}),
)
