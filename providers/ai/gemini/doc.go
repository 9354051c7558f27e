// Package gemini implements [ai.Provider] for Google's Gemini generative
// language API through the generateContent endpoint.
//
// The primary entry point is [New], which reads GOOGLE_API_KEY (or
// GEMINI_API_KEY) and GEMINI_API_BASE_URL from the environment. HTTP
// rejections surface as [ai.APIError], so a 429 RESOURCE_EXHAUSTED reply can be
// classified as a quota failure by the caller.
package gemini
