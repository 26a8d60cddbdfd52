// Package nfs holds the NFSv3 (RFC 1813) procedure numbers, status names
// and the argument/result codecs of the procedures a directory-listing
// client needs: LOOKUP and READDIRPLUS.
//
// Every codec works in both directions. The client encodes requests and
// decodes results; the in-process test server does the reverse.
package nfs
