package portmap

import "fmt"

// ServiceNotFoundError reports that the port mapper has no registration for
// the requested service (GETPORT returned port 0).
type ServiceNotFoundError struct {
	Host     string
	Program  uint32
	Version  uint32
	Protocol Protocol
}

func (e *ServiceNotFoundError) Error() string {
	return fmt.Sprintf("portmap: program %d version %d (%s) not registered on %s",
		e.Program, e.Version, e.Protocol, e.Host)
}
