package enricher

/*
* https://www.DIVD.nl
* released under the Apache 2.0 license
* https://www.apache.org/licenses/LICENSE-2.0
 */

import (
	"context"
	"net"
)

// netResolver verifies hostnames against the system resolver.
type netResolver struct{}

func (netResolver) Resolve(ctx context.Context, hostname string) bool {
	addrs, err := net.DefaultResolver.LookupHost(ctx, hostname)
	return err == nil && len(addrs) > 0
}
