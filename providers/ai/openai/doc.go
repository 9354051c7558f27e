// Package openai implements [ai.Provider] for OpenAI-compatible
// /chat/completions endpoints (OpenAI, OpenRouter, Ollama, vLLM and similar).
//
// devforge uses it mainly as a cross-vendor fallback tier. [New] reads
// OPENAI_API_KEY and OPENAI_API_BASE_URL from the environment.
package openai
