package service_registry

// Service is the interface implemented by every long-lived component with a
// managed lifecycle.
type Service interface {
	Start() error
	Stop() error
}
