/*
Package ports defines the driven ports (interfaces) for the twin3 engine.

These interfaces decouple the core logic from external implementations, allowing
the engine to work with various storage backends and text generators.

# Key Interfaces

  - ConversationStore: Persists the Conversation State of each session.
  - FlagStore: The small key/value capability used for persisted session flags.
  - DistributedLocker: Provides distributed locking for concurrent session access.
  - TextGenerator: The optional generative fallback for unmatched input.
*/
package ports
