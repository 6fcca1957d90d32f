// lotus-c2 runs commit phase 2 for a single work item:
//
//	lotus-c2 <identifier> <sector-size> [extra...]
//
// Parameters are read from $WORKER_PATH/param/<identifier> and the result
// replaces them. Exit code 0 is success, 255 a reported error, 254 a crash.
package main

import (
	"github.com/filmineio/lotus-subproc/storage/sealer/subproc"
	"github.com/filmineio/lotus-subproc/storage/sealer/subproc/mock"
)

func main() {
	subproc.Main(subproc.Commit2, mock.Engine{}, subproc.Options{UnbindCores: true})
}
