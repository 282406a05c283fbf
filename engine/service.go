package engine

import "github.com/pkg/errors"

// ServiceHandler answers service requests and control messages routed
// through the dispatcher, grounded on ExecEngineImp's services registry
// and its RegisterService/RemoveService/SendServiceReply/SendServiceInfo
// operations.
type ServiceHandler interface {
	HandleRequest(payload interface{}) (interface{}, error)
	HandleControl(payload interface{}) error
}

// RegisterService installs handler under name, replacing any existing
// registration, grounded on ExecEngineImp::RegisterService.
func (d *Dispatcher) RegisterService(name string, handler ServiceHandler) {
	if _, exists := d.services[name]; exists {
		warnf("service %q re-registered, replacing previous handler", name)
	}
	d.services[name] = handler
}

// RemoveService drops the handler registered under name, warning if none
// was registered, grounded on ExecEngineImp::RemoveService.
func (d *Dispatcher) RemoveService(name string) {
	if _, exists := d.services[name]; !exists {
		warnf("attempted to remove unregistered service %q", name)
		return
	}
	delete(d.services, name)
}

// SendServiceRequest resolves a request against a registered service,
// grounded on ExecEngineImp::ServiceRequestMessage_H.
func (d *Dispatcher) SendServiceRequest(name string, payload interface{}) (interface{}, error) {
	handler, ok := d.services[name]
	if !ok {
		return nil, errors.Errorf("engine: no such service %q", name)
	}
	return handler.HandleRequest(payload)
}

// SendServiceControl delivers a control message to a registered service,
// grounded on ExecEngineImp::ServiceControlMessage_H.
func (d *Dispatcher) SendServiceControl(name string, payload interface{}) error {
	handler, ok := d.services[name]
	if !ok {
		return errors.Errorf("engine: no such service %q", name)
	}
	return handler.HandleControl(payload)
}
