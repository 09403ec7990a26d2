// Package apikey discovers the ECMWF Web API credential triple
// (token, service URL, e-mail address).
//
// # Resolution order
//
// [Resolve] walks an ordered chain of lookup sources and stops at the
// first one holding a key:
//
//  1. ECMWF_API_KEY, ECMWF_API_URL and ECMWF_API_EMAIL environment
//     variables
//  2. the JSON file named by ECMWF_API_RC_FILE
//  3. ~/.ecmwfapirc
//  4. anonymous access
//
// A source with no key is skipped silently; a source with a broken key
// (incomplete triple, unreadable or malformed file) aborts the chain
// with an error wrapping [ErrInvalid]. Individual sources are exposed
// as [Lookup] values so callers can assemble their own chains.
package apikey
