package loomtransport

import "errors"

// ErrTransportClosed is returned by Send/Recv once Close has been called.
var ErrTransportClosed = errors.New("loomtransport: transport is closed")
