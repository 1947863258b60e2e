package main

import (
	"fmt"
	"os"
	"text/template"

	"github.com/reconquest/pkg/log"
	"github.com/seletskiy/tplutil"
)

var templateDatabaseNotPrepared = template.Must(template.New("").Parse(`
The buildhook service is installed but its database directory does not
exist yet.

Create the directory and make sure the service user can write to it:

 mkdir -p {{ .Dir }}

Alternatively, point buildhook at another location in ` + DEFAULT_CONFIG_PATH + `:

 database:
   path: {{ .Path }}

Webhook endpoints will be served at:

 POST /webhooks/github
 POST /webhooks/gitlab
 POST /webhooks/bitbucket
 POST /webhooks/jenkins/<pipeline-id>
 POST /webhooks/circleci/<pipeline-id>
 POST /webhooks/azure/<pipeline-id>
 POST /webhooks/generic/<pipeline-id>
`))

func ShowMessageDatabaseNotPrepared(dir string, path string) {
	message, err := tplutil.ExecuteToString(templateDatabaseNotPrepared, map[string]interface{}{
		"Dir":  dir,
		"Path": path,
	})
	if err != nil {
		log.Errorf(err, "unable to render message")
	}

	fmt.Fprintln(os.Stderr, message)
}
