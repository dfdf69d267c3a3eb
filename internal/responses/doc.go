// Package responses normalises Openleg payloads into domain records.
//
// Parsers are registered by the "responseType" discriminator the API puts
// on every envelope and, for mixed lists, on every item. Parsers are pure,
// so each can be tested on a literal payload.
package responses
