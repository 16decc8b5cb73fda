package kubernetes

import (
	"context"
	"errors"
	"testing"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	domainpack "github.com/felixgeelhaar/ruleup/domain/pack"
)

func configMap(name, ns string, labels map[string]string, data map[string]string) *corev1.ConfigMap {
	return &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: ns,
			Labels:    labels,
			Annotations: map[string]string{
				AnnotationPackageName:    "security_detection_engine",
				AnnotationPackageVersion: "8.15.2",
			},
		},
		Data: data,
	}
}

var selected = map[string]string{"ruleup.io/prebuilt-rules": "true"}

func TestSource_Fetch(t *testing.T) {
	t.Parallel()

	t.Run("reads selected configmaps", func(t *testing.T) {
		t.Parallel()

		client := fake.NewSimpleClientset(
			configMap("rules-1", "security", selected, map[string]string{
				"rule-a.json": `{"rule_id":"rule-a","version":1,"type":"query","name":"Rule A"}`,
			}),
			configMap("rules-2", "security", selected, map[string]string{
				"rule-b.yaml": "rule_id: rule-b\nversion: 2\ntype: threshold\nname: Rule B\n",
			}),
			configMap("unrelated", "security", map[string]string{"app": "x"}, map[string]string{"x.txt": "x"}),
		)

		p, err := New(client, "security", "").Fetch(context.Background())
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		if p.Name != "security_detection_engine" || p.Version != "8.15.2" {
			t.Errorf("package = %s %s", p.Name, p.Version)
		}
		if len(p.Assets) != 2 {
			t.Errorf("len(Assets) = %d, want 2", len(p.Assets))
		}
	})

	t.Run("no configmaps", func(t *testing.T) {
		t.Parallel()

		_, err := New(fake.NewSimpleClientset(), "", "").Fetch(context.Background())
		if !errors.Is(err, domainpack.ErrPackNotFound) {
			t.Errorf("Fetch() error = %v, want ErrPackNotFound", err)
		}
	})

	t.Run("unsupported key", func(t *testing.T) {
		t.Parallel()

		client := fake.NewSimpleClientset(configMap("rules", "default", selected, map[string]string{"notes.txt": "x"}))
		_, err := New(client, "", "").Fetch(context.Background())
		if !errors.Is(err, domainpack.ErrUnsupportedFormat) {
			t.Errorf("Fetch() error = %v, want ErrUnsupportedFormat", err)
		}
	})
}

func TestSource_Name(t *testing.T) {
	t.Parallel()

	s := New(fake.NewSimpleClientset(), "", "")
	if got := s.Name(); got != "kubernetes:default/"+DefaultLabelSelector {
		t.Errorf("Name() = %s", got)
	}
}
