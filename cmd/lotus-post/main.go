// lotus-post generates a window PoSt for the replicas listed in a work item.
package main

import (
	"github.com/filmineio/lotus-subproc/storage/sealer/subproc"
	"github.com/filmineio/lotus-subproc/storage/sealer/subproc/mock"
)

func main() {
	subproc.Main(subproc.WindowPoSt, mock.Engine{}, subproc.Options{})
}
