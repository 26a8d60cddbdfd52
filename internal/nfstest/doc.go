// Package nfstest runs an in-process NFSv3 server for tests.
//
// One TCP listener answers portmap, MOUNT v3 and NFS v3 calls, so a client
// only needs the listener port as its portmap port. The exported tree is
// an in-memory FS built by the test. Only the procedures a directory
// listing client issues are implemented: GETPORT, MNT, UMNT, NULL, LOOKUP
// and READDIRPLUS.
package nfstest
