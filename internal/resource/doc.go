// Package resource bounds the work a process spends on building execution
// contexts and moving geometry files.
//
// A Controller tracks three limits:
//
//   - Memory: geometry files being decoded. AcquireMemory blocks until the
//     reservation fits or ctx ends, and fails at once with
//     ErrMemoryLimitExceeded when it exceeds the whole limit.
//   - Builds: concurrent context index builds during Manager.Initialize.
//   - IO: a token bucket shared by geometry loads and writes, applied
//     through RateLimitedReader and RateLimitedWriter.
//
//	rc := resource.NewController(resource.Config{
//	    MaxConcurrentBuilds: 4,
//	    IOLimitBytesPerSec:  64 << 20,
//	})
//
//	if err := rc.AcquireBuild(ctx); err != nil {
//	    return err
//	}
//	defer rc.ReleaseBuild()
//
// All methods are safe for concurrent use. A nil *Controller imposes no
// limits, so callers need no nil checks.
package resource
