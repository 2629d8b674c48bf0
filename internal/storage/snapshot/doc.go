// Package snapshot encodes application state into encrypted snapshot blobs and
// keeps the pending-push cache.
//
// A blob is the base64 encoding of a tagged envelope:
//
//	[magic:4 "MSNP"][version:1][format:1][cipher:1][nonce||ciphertext]
//
// The AEAD key is an HKDF subkey of the 32-byte sync key and the header is
// authenticated as additional data. Format 1 carries base64(deflate(json)),
// format 2 plain JSON text.
//
// Blobs without the magic prefix are legacy payloads: AES-GCM under the raw
// sync key, holding compressed or plain JSON. They are still accepted on
// decode and never produced.
//
// The pending cache stores the last encoded blob in a checksummed file:
//
//	[magic:8 "MSPEND01"][HeaderLen:4][HeaderJSON][BlobLen:4][Blob][sha256:32]
package snapshot
