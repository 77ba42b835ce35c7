// Package catalog implements a manga source backed by a local YAML file.
//
// The file declares the source and its mangas:
//
//	source:
//	  id: 7
//	  name: local
//	mangas:
//	  - key: one-piece
//	    title: One Piece
//	    status: 1
//	    chapters:
//	      - key: op-1001
//	        name: Chapter 1001
//
// Every failure to read or resolve the catalogue is reported as an
// engine transport error.
package catalog
