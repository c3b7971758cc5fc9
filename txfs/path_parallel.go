package txfs

import "golang.org/x/sync/errgroup"

// resolveMany validates and relativizes several caller-supplied paths
// concurrently, mirroring the teacher's ParallelSafePath technique of
// resolving a batch of paths without blocking on the host filesystem once
// for each one in sequence. Results preserve input order regardless of
// which goroutine finishes first; the first error encountered (if any)
// wins and the rest are still awaited so nothing leaks.
func (g *guard) resolveMany(paths ...string) ([]string, error) {
	out := make([]string, len(paths))
	var eg errgroup.Group
	for i, p := range paths {
		i, p := i, p
		eg.Go(func() error {
			rel, err := g.toRel(p)
			if err != nil {
				return err
			}
			out[i] = rel
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
