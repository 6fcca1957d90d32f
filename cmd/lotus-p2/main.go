// lotus-p2 runs pre-commit phase 2 for a single work item:
//
//	lotus-p2 <identifier> <sector-size> [extra...]
//
// Parameters are read from $WORKER_PATH/param/<identifier> and the result
// replaces them. Exit code 0 is success, 255 a reported error, 254 a crash.
package main

import (
	"github.com/filmineio/lotus-subproc/storage/sealer/subproc"
	"github.com/filmineio/lotus-subproc/storage/sealer/subproc/mock"
)

func main() {
	subproc.Main(subproc.PreCommit2, mock.Engine{}, subproc.Options{})
}
