package transfer

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listPage(keys []string, nextToken string) string {
	body := `<?xml version="1.0" encoding="UTF-8"?>` +
		`<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">` +
		`<Name>kataloge</Name><Prefix>eingang/</Prefix><MaxKeys>1000</MaxKeys>`
	for _, k := range keys {
		body += fmt.Sprintf(
			`<Contents><Key>%s</Key><LastModified>2026-08-01T06:00:00.000Z</LastModified><Size>10</Size></Contents>`, k)
	}
	if nextToken != "" {
		body += fmt.Sprintf(`<IsTruncated>true</IsTruncated><NextContinuationToken>%s</NextContinuationToken>`, nextToken)
	} else {
		body += `<IsTruncated>false</IsTruncated>`
	}
	return body + `</ListBucketResult>`
}

// Der Endpunkt liefert das Listing absichtlich in zwei Seiten; beide
// müssen im Ergebnis landen.
func TestS3ListFollowsPagination(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("list-type") != "2" {
			http.Error(w, "unexpected request", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/xml")
		switch r.URL.Query().Get("continuation-token") {
		case "":
			fmt.Fprint(w, listPage([]string{"eingang/DATANORM_0815_Muster_001.001", "eingang/unterordner/x.dat"}, "seite2"))
		case "seite2":
			fmt.Fprint(w, listPage([]string{"eingang/DATANORM_0815_Muster_002.001"}, ""))
		default:
			http.Error(w, "unknown token", http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	client, err := NewS3Client(context.Background(), S3Endpoint{
		Key:    "schluessel",
		Secret: "geheim",
		URL:    srv.URL,
		Region: "eu-central-1",
		Bucket: "kataloge",
	})
	require.NoError(t, err)

	files, err := client.List(context.Background(), "eingang")
	require.NoError(t, err)

	// Beide Seiten eingesammelt, verschachtelte Schlüssel übersprungen.
	require.Len(t, files, 2)
	assert.Equal(t, "DATANORM_0815_Muster_001.001", files[0].Name)
	assert.Equal(t, "DATANORM_0815_Muster_002.001", files[1].Name)
	assert.Equal(t, int64(10), files[0].Size)
}
