/*
Package gatewaysdk is a Go client for the tabgate connection gateway.

# Client vs Session

A Client talks to the public endpoints and logs users in:

	client := gatewaysdk.NewClient("https://gateway.example.com")

	health, err := client.Readiness(ctx)

	session, err := client.Login(ctx, "alice", "Sup3rSecret", "")

A Session carries a token pair and refreshes the access token shortly
before it expires. Admin calls and websocket dials go through a Session:

	rules, err := session.GetRules(ctx)

	conn, err := session.Dial(ctx)
	defer conn.Close()

	err = conn.Send(ctx, map[string]any{"type": "ping"})
	msg, err := conn.Receive(ctx)

# Errors

Non-2xx responses come back as *APIError carrying the HTTP status and the
error code from the body:

	var apiErr *gatewaysdk.APIError
	if errors.As(err, &apiErr) && apiErr.Code == gatewaysdk.ErrorCodeLockedOut {
		// back off
	}

A dial rejected for a bad credential surfaces as a *CloseError from the
first Receive, carrying the gateway's close code.
*/
package gatewaysdk
