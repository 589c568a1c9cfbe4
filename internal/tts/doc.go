// Package tts talks to the remote "text to audio bytes" endpoint.
//
// Synthesizer is the seam the synthesis worker depends on. Client implements
// it against any OpenAI-compatible /audio/speech endpoint using openai-go with
// SDK retries disabled, since retry policy belongs to the caller. Classify
// maps transport and HTTP failures onto the services error markers.
package tts
