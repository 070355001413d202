package internal

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/jedib0t/go-pretty/table"
	"github.com/wal-g/tracelog"

	"github.com/walguard/walguard/internal/pgbackrest"
)

// HandleBackupList prints the backups recorded in the local engine
// repository, without invoking the engine binary.
func HandleBackupList(repo *pgbackrest.Repository, stanza string, output io.Writer, pretty, asJSON bool) error {
	if !repo.Exists(stanza) {
		tracelog.InfoLogger.Printf("Stanza '%s' is not initialized in repository %s", stanza, repo.Path())
		return nil
	}

	backups, err := repo.LoadBackupsSettings(stanza)
	if err != nil {
		return err
	}
	if len(backups) == 0 {
		tracelog.InfoLogger.Println("No backups found")
		return nil
	}

	switch {
	case asJSON:
		return WriteAsJSON(backups, output, pretty)
	case pretty:
		WritePrettyBackupList(backups, output)
	default:
		WriteBackupList(backups, output)
	}
	return nil
}

func WriteBackupList(backups []pgbackrest.BackupSettings, output io.Writer) {
	writer := tabwriter.NewWriter(output, 0, 0, 1, ' ', 0)
	defer writer.Flush()
	fmt.Fprintln(writer, "name\ttype\tstart_time\twal_start\twal_stop\tprior")
	for _, backup := range backups {
		fmt.Fprintf(writer, "%v\t%v\t%v\t%v\t%v\t%v\n",
			backup.Name,
			backup.BackupType,
			time.Unix(backup.BackupTimestampStart, 0).UTC().Format(time.RFC3339),
			backup.BackupArchiveStart,
			backup.BackupArchiveStop,
			backup.BackupPrior)
	}
}

func WritePrettyBackupList(backups []pgbackrest.BackupSettings, output io.Writer) {
	writer := table.NewWriter()
	writer.SetOutputMirror(output)
	defer writer.Render()
	writer.AppendHeader(table.Row{"#", "Name", "Type", "Start time", "WAL start", "WAL stop", "Prior"})
	for i, backup := range backups {
		writer.AppendRow(table.Row{
			i,
			backup.Name,
			backup.BackupType,
			time.Unix(backup.BackupTimestampStart, 0).UTC().Format(time.RFC850),
			backup.BackupArchiveStart,
			backup.BackupArchiveStop,
			backup.BackupPrior,
		})
	}
}

func WriteAsJSON(data interface{}, output io.Writer, pretty bool) error {
	var bytes []byte
	var err error
	if pretty {
		bytes, err = json.MarshalIndent(data, "", "    ")
	} else {
		bytes, err = json.Marshal(data)
	}
	if err != nil {
		return err
	}
	_, err = output.Write(bytes)
	return err
}
