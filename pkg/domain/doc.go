/*
Package domain contains the core domain models of the twin3 interaction engine.

It defines the scripted conversational nodes, the conversation log and the
verification table. This package is kept pure and free of external dependencies
like I/O or persistence, following Hexagonal Architecture principles.

# Key Entities

  - Node: One scripted conversational step (triggers, response, suggestions).
  - Message: One append-only entry in the conversation log.
  - Conversation: The persisted Conversation State of a session.
  - Action / TurnResult: The inbound and outbound shapes of a turn.
  - VerificationMethod: One row of the static humanity table.
*/
package domain
