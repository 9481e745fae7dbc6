// Package shutdown provides graceful shutdown for DirMesh.
//
// A Handler supervises the tasks of dirmesh-server (listeners, gossip
// loops, the admin endpoint) and tears them down on SIGINT or SIGTERM or
// when one of them fails:
//
//	h := shutdown.NewHandler(30*time.Second, logger)
//	h.Go("exchange", fed.Run)
//	h.OnShutdown(srv.Shutdown)
//	err := h.Wait()
package shutdown
