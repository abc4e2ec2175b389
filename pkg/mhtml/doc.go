// Package mhtml cuts a saved web-page archive into its parts.
//
// An archive is a MIME multipart/related message. An optional outer header
// block declares the boundary:
//
//	Content-Type: multipart/related; type="text/html"; boundary="B"
//
//	--B
//	Content-Type: text/html
//	Content-Transfer-Encoding: quoted-printable
//	Content-Location: https://example.com/
//
//	<html>...
//	--B
//	Content-Type: image/png
//	Content-Transfer-Encoding: base64
//	Content-Location: https://example.com/logo.png
//
//	iVBORw0KGgo...
//	--B--
//
// Archives written without the outer header start directly with the first
// delimiter line, in which case the boundary is taken from that line.
//
// There is no length framing: parts are delimited only by lines equal to
// "--" + boundary, and the stream ends at "--" + boundary + "--". Part 0 is
// the top-level document by convention. Split never fails; an archive without
// a discoverable boundary yields no parts and the caller decides what that
// means. Classify turns each raw part into a typed ArchivePart and never fails
// either: missing headers fall back to defaults.
package mhtml
