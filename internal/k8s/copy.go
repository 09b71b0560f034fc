package k8s

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/tools/remotecommand"
)

// CopyToPod streams a local file or directory into a pod as a tar archive,
// unpacked by `tar -xmf -` in the destination directory. This is the same
// mechanism kubectl cp uses.
func (c *Client) CopyToPod(ctx context.Context, namespace, pod, container, localPath, destDir string) error {
	if _, err := os.Stat(localPath); err != nil {
		return fmt.Errorf("local path %s: %w", localPath, err)
	}

	reader, writer := io.Pipe()
	go func() {
		writer.CloseWithError(makeTar(localPath, writer))
	}()

	req := c.Clientset.CoreV1().RESTClient().Post().
		Resource("pods").
		Name(pod).
		Namespace(namespace).
		SubResource("exec").
		VersionedParams(&corev1.PodExecOptions{
			Container: container,
			Command:   []string{"tar", "-xmf", "-", "-C", destDir},
			Stdin:     true,
			Stdout:    true,
			Stderr:    true,
		}, scheme.ParameterCodec)

	exec, err := c.newExecutor(c.Config, "POST", req.URL())
	if err != nil {
		return fmt.Errorf("creating SPDY executor: %w", err)
	}

	var stderr bytes.Buffer
	err = exec.StreamWithContext(ctx, remotecommand.StreamOptions{
		Stdin:  reader,
		Stdout: io.Discard,
		Stderr: &stderr,
	})
	if err != nil {
		return fmt.Errorf("copying %s to %s/%s: %w (stderr: %s)", localPath, namespace, pod, err, stderr.String())
	}
	return nil
}

// makeTar archives a file or directory tree. Entry names are relative to
// the source's parent so a directory lands under its own name.
func makeTar(localPath string, w io.Writer) error {
	tw := tar.NewWriter(w)
	defer tw.Close()

	base := filepath.Dir(filepath.Clean(localPath))

	return filepath.WalkDir(localPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() && !info.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(base, path)
		if err != nil {
			return err
		}

		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)

		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
}
