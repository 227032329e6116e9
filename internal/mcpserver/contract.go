package mcpserver

// EmbeddingContract describes how encrypted content must be placed in a
// document for the decryptor to find it.
const EmbeddingContract = `# Decryptor Embedding Contract

Documents are HTML files (` + "`.html`" + ` or ` + "`.htm`" + `) in the library. Two kinds of
encrypted content are recognised.

## Armored text

An element whose only content is an ASCII-armored PGP message:

` + "```" + `html
<p>-----BEGIN PGP MESSAGE-----
hQEMA...base64 lines...
=abcd
-----END PGP MESSAGE-----</p>
` + "```" + `

Rules:

1. The element must have no child elements. Wrap the block in its own ` + "`<p>`" + `,
   ` + "`<pre>`" + ` or ` + "`<div>`" + `.
2. Leading and trailing whitespace is ignored. Between the markers only base64
   characters (` + "`A-Z a-z 0-9 + / =`" + `) and line breaks are allowed.
3. The decrypted result replaces the element's content as plain text.
4. Identical blocks anywhere in the document are decrypted once.

## Encrypted files

Any element with a ` + "`src`" + ` attribute ending in ` + "`.gpg`" + ` or ` + "`.asc`" + `
(case-insensitive):

` + "```" + `html
<img src="images/photo.jpg.gpg">
<video controls><source src="clips/intro.webm.gpg"></video>
` + "```" + `

Rules:

1. Relative locators resolve against the document's directory, root-relative
   ones (` + "`/shared/x.gpg`" + `) against the library root. ` + "`http(s)`" + ` URLs are downloaded.
2. The decrypted file is served from ` + "`/blobs/<id>`" + ` and the ` + "`src`" + ` attribute is
   rewritten to that handle. Media elements are reloaded.
3. Changing ` + "`src`" + ` later does not trigger a new decryption.
`
