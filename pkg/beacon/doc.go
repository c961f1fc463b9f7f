// Package beacon turns Go errors into structured events and delivers them.
//
// An error and every cause reachable through Unwrap are walked, each cause
// becomes one exception entry (root cause first), and the resulting event is
// handed to the client bound to the process-wide hub. When no client is
// bound, capturing is a no-op and returns uuid.Nil.
//
// Typical use:
//
//	cfg, err := config.Load("")
//	if err != nil {
//		return err
//	}
//	sys, err := beacon.Init(cfg)
//	if err != nil {
//		return err
//	}
//	defer sys.Close()
//
//	if err := doWork(); err != nil {
//		beacon.CaptureError(err)
//	}
package beacon
