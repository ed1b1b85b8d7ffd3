package storage

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/rs/zerolog"

	"research-assistant/internal/domain"
	"research-assistant/internal/domain/ports/repository"
)

var _ repository.ArtifactStore = (*AzBlobStore)(nil)

// namespaceMarker makes an otherwise empty job prefix visible to listings.
const namespaceMarker = ".namespace"

// AzBlobStore keeps artifacts as blobs named <job id>/<artifact>.
type AzBlobStore struct {
	client    *azblob.Client
	container string
	logger    *zerolog.Logger
}

func NewAzBlobStore(ctx context.Context, connectionString, container string, logger *zerolog.Logger) (*AzBlobStore, error) {
	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, err
	}
	l := logger.With().Str("component", "AzBlobStore").Str("container", container).Logger()
	s := &AzBlobStore{client: client, container: container, logger: &l}
	if err := s.ensureContainer(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *AzBlobStore) ensureContainer(ctx context.Context) error {
	_, err := s.client.CreateContainer(ctx, s.container, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return err
	}
	return nil
}

func blobName(jobID, name string) (string, error) {
	if jobID == "" || strings.ContainsAny(jobID, `/\`) || strings.Contains(jobID, "..") {
		return "", domain.InvalidInputError("job id", nil)
	}
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return "", domain.InvalidInputError("artifact name", nil)
	}
	return jobID + "/" + name, nil
}

func (s *AzBlobStore) CreateNamespace(ctx context.Context, jobID string) error {
	return s.Put(ctx, jobID, namespaceMarker, nil)
}

func (s *AzBlobStore) NamespaceExists(ctx context.Context, jobID string) (bool, error) {
	if _, err := blobName(jobID, namespaceMarker); err != nil {
		return false, nil
	}
	pager := s.client.NewListBlobsFlatPager(s.container, &azblob.ListBlobsFlatOptions{
		Prefix:     to.Ptr(jobID + "/"),
		MaxResults: to.Ptr(int32(1)),
	})
	if !pager.More() {
		return false, nil
	}
	page, err := pager.NextPage(ctx)
	if err != nil {
		return false, err
	}
	return page.Segment != nil && len(page.Segment.BlobItems) > 0, nil
}

func (s *AzBlobStore) Put(ctx context.Context, jobID, name string, data []byte) error {
	blob, err := blobName(jobID, name)
	if err != nil {
		return err
	}
	if data == nil {
		data = []byte{}
	}
	_, err = s.client.UploadBuffer(ctx, s.container, blob, data, nil)
	if err != nil {
		s.logger.Error().Err(err).Str("blob", blob).Msg("upload failed")
	}
	return err
}

func (s *AzBlobStore) Get(ctx context.Context, jobID, name string) ([]byte, error) {
	blob, err := blobName(jobID, name)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.DownloadStream(ctx, s.container, blob, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, resp.Body); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *AzBlobStore) List(ctx context.Context, jobID string) ([]string, error) {
	if _, err := blobName(jobID, namespaceMarker); err != nil {
		return nil, err
	}
	prefix := jobID + "/"
	pager := s.client.NewListBlobsFlatPager(s.container, &azblob.ListBlobsFlatOptions{Prefix: &prefix})

	out := []string{}
	seen := false
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		if page.Segment == nil {
			continue
		}
		for _, item := range page.Segment.BlobItems {
			if item == nil || item.Name == nil {
				continue
			}
			seen = true
			name := strings.TrimPrefix(*item.Name, prefix)
			if name == "" || strings.Contains(name, "/") || strings.HasPrefix(name, ".") {
				continue
			}
			out = append(out, name)
		}
	}
	if !seen {
		return nil, domain.ErrNotFound
	}
	sort.Strings(out)
	return out, nil
}
