// Package prompts contains the prompt text the assistant sends to models.
//
// Prompt text is Go code rather than config files because it is program
// logic: the system prompt is rendered from a structured [Context] so the
// injected facts (reference time, collections, rules, preferred name) can
// be tested independently of the surrounding prose.
//
// Convention: each prompt category gets its own file with an exported
// function or method that accepts the dynamic parts and returns the fully
// interpolated string.
package prompts
