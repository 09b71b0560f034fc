package k8s

import (
	"context"
	"fmt"
	"regexp"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/klog/v2"
)

// MatchPods lists the pods in a namespace whose name matches the pattern.
func (c *Client) MatchPods(ctx context.Context, namespace, pattern string) ([]corev1.Pod, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pod pattern %q: %w", pattern, err)
	}

	list, err := c.Clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("listing pods in %s: %w", namespace, err)
	}

	var matched []corev1.Pod
	for _, pod := range list.Items {
		if re.MatchString(pod.Name) {
			matched = append(matched, pod)
		}
	}
	return matched, nil
}

// RestartPods gracefully deletes every matching pod so its controller
// recreates it. Returns the names of the pods that were deleted.
func (c *Client) RestartPods(ctx context.Context, namespace, pattern string) ([]string, error) {
	return c.deleteMatching(ctx, namespace, pattern, metav1.DeleteOptions{}, false)
}

// PurgePods force-deletes matching pods with grace period zero. With
// failedOnly set, only pods in the Failed phase (evicted pods included)
// are removed.
func (c *Client) PurgePods(ctx context.Context, namespace, pattern string, failedOnly bool) ([]string, error) {
	grace := int64(0)
	return c.deleteMatching(ctx, namespace, pattern, metav1.DeleteOptions{
		GracePeriodSeconds: &grace,
	}, failedOnly)
}

func (c *Client) deleteMatching(ctx context.Context, namespace, pattern string, opts metav1.DeleteOptions, failedOnly bool) ([]string, error) {
	pods, err := c.MatchPods(ctx, namespace, pattern)
	if err != nil {
		return nil, err
	}

	var deleted []string
	for _, pod := range pods {
		if failedOnly && pod.Status.Phase != corev1.PodFailed {
			continue
		}
		if err := c.Clientset.CoreV1().Pods(namespace).Delete(ctx, pod.Name, opts); err != nil {
			klog.Warningf("deleting pod %s/%s: %v", namespace, pod.Name, err)
			continue
		}
		deleted = append(deleted, pod.Name)
	}
	return deleted, nil
}

// ServiceStatus describes a service and its ready backends.
type ServiceStatus struct {
	Name           string
	ClusterIP      string
	Ports          []int32
	ReadyEndpoints int
}

// CheckService looks up a service and counts its ready endpoint addresses.
// A missing service or one with no ready endpoints is an error.
func (c *Client) CheckService(ctx context.Context, namespace, name string) (*ServiceStatus, error) {
	svc, err := c.Clientset.CoreV1().Services(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("service %s/%s: %w", namespace, name, err)
	}

	status := &ServiceStatus{
		Name:      svc.Name,
		ClusterIP: svc.Spec.ClusterIP,
	}
	for _, p := range svc.Spec.Ports {
		status.Ports = append(status.Ports, p.Port)
	}

	endpoints, err := c.Clientset.CoreV1().Endpoints(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("endpoints %s/%s: %w", namespace, name, err)
	}
	for _, subset := range endpoints.Subsets {
		status.ReadyEndpoints += len(subset.Addresses)
	}

	if status.ReadyEndpoints == 0 {
		return status, fmt.Errorf("service %s/%s has no ready endpoints", namespace, name)
	}
	return status, nil
}
