// Package generate resolves insert commands into synthesized speech.
//
// A Generator turns the bounded request text of an insert into a short
// spoken-style answer and a Synthesizer renders it to audio. Responses are
// sanitized to plain prose before they are accepted. The Service stores each
// clip as a generated_insert media item so it can be placed again without
// regeneration, enforces the per-command regeneration budget and applies the
// block/skip failure policy during assembly. A failed insert is always
// recorded on the command and never becomes a silent gap.
package generate
