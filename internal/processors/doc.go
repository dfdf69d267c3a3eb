// Package processors reconciles normalized records with local content.
//
// Each bundle has a Definition: the response types it accepts, the fields
// an import may write and the parents that must already exist. Imports
// only touch mapped fields, so local edits to anything else survive
// repeated runs.
package processors
