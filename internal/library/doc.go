// Package library describes where things live in a media library and what
// they are called.
//
// Media sits in dated folders (YYYY/YYYY-MM-DD) under the root, named
// <img|vid>_<YYYYMMDD>_<hash fragment>[_<n>].<ext>. Reserved dot-directories
// under the root hold thumbnails, the trash, index backups, import staging
// and logs; the synchronizer never indexes anything inside them.
package library
