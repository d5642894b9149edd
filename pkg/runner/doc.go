/*
Package runner implements the interactive chat loop for a twin3 conversation.

It is the bridge between a session.Manager and a terminal (or any line-based
stream). The runner starts or resumes a session, prints every message the
engine appends, and turns each input line into an action, a suggestion click
or a slash command.

# Key Components

  - Runner: reads input, dispatches it and prints the new part of the log.
  - IOHandler: decouples how messages are shown and how input is read.
  - TextHandler: human-readable output with numbered suggestions.
  - JSONHandler: one JSON object per line, for scripting.

# Commands

	/new             start over with the welcome message
	/verify <method> record a completed verification method
	/score           show the Humanity Index breakdown
	/help            list commands
	/quit            leave the chat

A bare number picks the matching suggestion.

# Usage

	r := runner.NewRunner(sessions,
		runner.WithSessionID("user-1"),
		runner.WithInputHandler(runner.NewTextHandler(os.Stdin, os.Stdout)),
	)

	if err := r.Run(ctx); err != nil {
		log.Fatal(err)
	}
*/
package runner
