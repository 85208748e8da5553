package dispatch

import "errors"

// Policy errors surfaced by Submit. Transport and server errors keep their
// classification from the alertapi boundary; location failures are wrapped
// in ErrLocation by Submit itself.
var (
    ErrInvalidType = errors.New("invalid alert type")
    ErrPermission  = errors.New("insufficient permissions to create alerts")
    ErrCooldown    = errors.New("please wait before sending another alert")
    ErrLocation    = errors.New("location acquisition failed")
)
