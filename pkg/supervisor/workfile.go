package supervisor

import (
	"encoding/json"
	"path/filepath"

	kio "github.com/basaltrun/slurmpipe/pkg/io"
	"github.com/basaltrun/slurmpipe/pkg/errors"
	"github.com/basaltrun/slurmpipe/pkg/param"
)

// materializeWorkFile writes one JSON array to <runDir>/<bucketName>.work.json,
// element i holding bucket member i's parameter record — the contract
// cmd/launcher's ARRAY_TASK_ID indexing depends on.
func materializeWorkFile(runDir, bucketName string, records []map[string]param.Value) (string, error) {
	path := filepath.Join(runDir, bucketName+".work.json")

	f, err := kio.CreateAll(path, 0o644, 0o755)
	if err != nil {
		return "", errors.Wrap(err)
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	if err := encoder.Encode(records); err != nil {
		return "", errors.Wrap(err)
	}
	return path, nil
}
