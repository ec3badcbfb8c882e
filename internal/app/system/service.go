package system

import "context"

// Service is a component the Manager starts in registration order and stops
// in reverse. Start must return once the component is running; long work
// belongs in goroutines owned by the service.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// NoopService reserves a name for a component without background work, such
// as the request-driven storefront managers.
type NoopService struct {
	ServiceName string
}

func (n NoopService) Name() string                { return n.ServiceName }
func (n NoopService) Start(context.Context) error { return nil }
func (n NoopService) Stop(context.Context) error  { return nil }
