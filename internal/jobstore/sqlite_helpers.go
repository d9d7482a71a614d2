package jobstore

import "strings"

const (
	jobColumns     = "id, type, dt, lock, data"
	jobKeyColumns  = "id, type, dt, lock"
	maxIDsPerQuery = 500
)

// scanJob reads one row from either database driver.
func scanJob(scanner interface{ Scan(dest ...any) error }, withData bool) (Job, error) {
	var (
		job  Job
		data []byte
	)
	dest := []any{&job.ID, &job.Type, &job.Dt, &job.Lock}
	if withData {
		dest = append(dest, &data)
	}
	if err := scanner.Scan(dest...); err != nil {
		return Job{}, err
	}
	if data != nil {
		job.Data = append([]byte(nil), data...)
	}
	return job, nil
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", count), ",")
}

// chunkIDs splits ids into slices small enough for one IN (...) clause.
func chunkIDs(ids []string) [][]string {
	var chunks [][]string
	for len(ids) > maxIDsPerQuery {
		chunks = append(chunks, ids[:maxIDsPerQuery])
		ids = ids[maxIDsPerQuery:]
	}
	if len(ids) > 0 {
		chunks = append(chunks, ids)
	}
	return chunks
}

func nullableBytes(value []byte) any {
	if value == nil {
		return nil
	}
	return value
}
