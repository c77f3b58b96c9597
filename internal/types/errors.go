package types

import "github.com/newffy/nessie/internal/nesserr"

func errPutDeleteSameKey(k ContentKey) error {
	return nesserr.New(nesserr.InvalidArgument, "key %q is both put and deleted in the same attempt", k.String())
}
