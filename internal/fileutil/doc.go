// Package fileutil holds filesystem helpers shared by the blob store.
package fileutil
