package assetdir

import "errors"

// ErrDirectoryUnavailable indicates the asset inventory could not be
// reached, rejected the credentials, or has no completed discovery cycle.
var ErrDirectoryUnavailable = errors.New("asset directory unavailable")
