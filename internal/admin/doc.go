// Package admin implements the console's user-management operations and the
// periodic user-list refresh.
//
// # Service
//
// Service fronts the remote directory endpoints with client-side checks:
// a new user needs a username, a password, a valid role, and a non-empty
// schema, and a request missing any of those is rejected before the network
// is touched. Edits are partial: blank fields mean "leave unchanged", and a
// blank password in particular never travels.
//
// # Poller
//
// Poller is the refresh loop behind the live user table. It fetches once on
// Start, then once per interval, delivering each result to OnUsers (failures
// go to OnError and the log). The loop is owned by the caller's context:
// cancel it, or call Stop, and delivery halts. Stop blocks until the
// goroutine has exited, so callers can tear down handlers without a late
// callback firing into freed state.
//
// # Usage
//
// Wire the service and poller to an authenticated client:
//
//	svc := admin.NewService(client, logger)
//	poller := admin.NewPoller(client, 30*time.Second, logger)
//	poller.OnUsers = table.Replace
//	poller.Start(ctx)
//	defer poller.Stop()
package admin
