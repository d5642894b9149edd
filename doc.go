/*
Package twin3 is a scripted conversation engine for onboarding users into a
"prove you are human" product.

A conversation is driven by an Interaction Inventory: an ordered list of
nodes, each with trigger keywords and a canned response (text, an optional
card, an optional inline widget and follow-up suggestions). Free text is
routed to the first node whose trigger appears in it. Text that matches
nothing is handed to an optional generative model, and when that is disabled
or fails the conversation falls back to a fixed node.

Some actions are gated behind verification. Completing verification methods
raises a Humanity Index (0-255) and unlocks them.

# Architecture

The package wires the hexagonal core to its adapters:

  - pkg/inventory: nodes, the trigger resolver and the YAML loader.
  - internal/runtime: the response dispatcher (one turn per action).
  - pkg/session: per-session state, the busy flag, resets and verification.
  - pkg/adapters: storage (memory, file, redis), generators (genai, nop)
    and transports (http, mcp).
  - pkg/persistence/middleware: optional redaction and encryption of
    stored conversations.

# Usage

	app, err := twin3.New(ctx, config.Default())
	if err != nil {
		log.Fatal(err)
	}
	defer app.Close()

	conv, err := app.Sessions.Create(ctx)
	if err != nil {
		log.Fatal(err)
	}
	result, err := app.Sessions.Send(ctx, conv.SessionID, domain.Say("I want to verify"))
*/
package twin3
