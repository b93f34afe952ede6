package extract

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	blerrors "github.com/standardbeagle/bladelsp/internal/errors"
	"github.com/standardbeagle/bladelsp/internal/filetype"
	"github.com/standardbeagle/bladelsp/internal/types"
)

func TestStructuredBlade(t *testing.T) {
	s := NewStructuredStrategy(10)
	set, err := s.Extract([]byte(layoutTemplate), filetype.Blade)
	require.NoError(t, err)

	assert.Equal(t, []string{"extends", "section", "endsection"}, texts(set[types.CategoryDirective]))
	assert.Equal(t, []string{"layouts.app"}, texts(set[types.CategoryView]), "commented include must be skipped")
	assert.Equal(t, []string{"alert"}, texts(set[types.CategoryComponent]))
	assert.Equal(t, []string{"counter"}, texts(set[types.CategoryLivewire]))
	assert.Equal(t, []string{"messages.welcome"}, texts(set[types.CategoryTranslation]))
	assert.Equal(t, []string{"home"}, texts(set[types.CategoryRoute]))
	assert.Equal(t, []string{"app.name"}, texts(set[types.CategoryConfig]))

	view := set[types.CategoryView][0]
	assert.Equal(t, types.Position{Line: 0, Column: 10}, view.Start)
	assert.Equal(t, types.Position{Line: 0, Column: 21}, view.End)
	assert.Equal(t, "extends", view.Detail)

	extends := set[types.CategoryDirective][0]
	assert.Equal(t, types.Position{Line: 0, Column: 0}, extends.Start)
	assert.Equal(t, types.Position{Line: 0, Column: 8}, extends.End)
	assert.Equal(t, "'layouts.app'", extends.Detail)

	component := set[types.CategoryComponent][0]
	assert.Equal(t, posOf(t, layoutTemplate, "x-alert", 0), component.Start)
	assert.Equal(t, "x-alert", component.Detail)

	assert.Equal(t, posOf(t, layoutTemplate, "counter", 0), set[types.CategoryLivewire][0].Start)
	assert.Equal(t, posOf(t, layoutTemplate, "messages.welcome", 0), set[types.CategoryTranslation][0].Start)
	assert.Equal(t, posOf(t, layoutTemplate, "home'", 0), set[types.CategoryRoute][0].Start)
	assert.Equal(t, posOf(t, layoutTemplate, "app.name", 0), set[types.CategoryConfig][0].Start)
}

func TestStructuredBladeSlotsAndRefs(t *testing.T) {
	content := `<x-card>
    <x-slot:title>Orders</x-slot:title>
    <x-slot name="footer">Total</x-slot>
    @includeWhen($user->isAdmin(), 'admin.panel')
    @livewire('cart')
    @lang('orders.heading')
</x-card>
`
	set, err := NewStructuredStrategy(10).Extract([]byte(content), filetype.Blade)
	require.NoError(t, err)

	assert.Equal(t, []string{"card"}, texts(set[types.CategoryComponent]))
	assert.Equal(t, []string{"title", "footer"}, texts(set[types.CategorySlot]))
	assert.Equal(t, []string{"admin.panel"}, texts(set[types.CategoryView]))
	assert.Equal(t, []string{"cart"}, texts(set[types.CategoryLivewire]))
	assert.Equal(t, []string{"orders.heading"}, texts(set[types.CategoryTranslation]))
	assert.Equal(t, posOf(t, content, "footer", 0), set[types.CategorySlot][1].Start)
}

func TestStructuredBladeVerbatimAndEscapes(t *testing.T) {
	content := "@verbatim\n@if($x) {{ view('no') }}\n@endverbatim\n@@if written literally @{{ route('no') }}\nmail me at dev@example.com\n"
	set, err := NewStructuredStrategy(10).Extract([]byte(content), filetype.Blade)
	require.NoError(t, err)

	assert.Equal(t, []string{"verbatim", "endverbatim"}, texts(set[types.CategoryDirective]))
	assert.Empty(t, set[types.CategoryView])
	assert.Empty(t, set[types.CategoryRoute])
}

func TestStructuredBladePHPBlock(t *testing.T) {
	content := "@php\n    $name = config('app.name');\n@endphp\n<?php echo env('APP_ENV'); ?>\n"
	set, err := NewStructuredStrategy(10).Extract([]byte(content), filetype.Blade)
	require.NoError(t, err)

	assert.Equal(t, []string{"php", "endphp"}, texts(set[types.CategoryDirective]))
	assert.Equal(t, []string{"app.name"}, texts(set[types.CategoryConfig]))
	assert.Equal(t, []string{"APP_ENV"}, texts(set[types.CategoryEnv]))
	assert.False(t, set[types.CategoryEnv][0].HasDefault)
	assert.Equal(t, types.Position{Line: 1, Column: 20}, set[types.CategoryConfig][0].Start)
}

func TestStructuredBladeSyntaxError(t *testing.T) {
	content := "<p>ok</p>\n{{ $total + }}\n"
	set, err := NewStructuredStrategy(10).Extract([]byte(content), filetype.Blade)
	require.Error(t, err)
	require.NotNil(t, set)

	var partial *blerrors.PartialParseError
	require.True(t, errors.As(err, &partial))
	require.NotEmpty(t, partial.Errors)
	assert.Equal(t, blerrors.KindSyntax, partial.Errors[0].Kind)
	assert.True(t, partial.Errors[0].Recoverable)
	assert.Equal(t, 1, partial.Errors[0].Line)
}

func TestStructuredPHP(t *testing.T) {
	set, err := NewStructuredStrategy(10).Extract([]byte(controllerSource), filetype.PHP)
	require.NoError(t, err)

	assert.Equal(t, []string{"auth", "verified"}, texts(set[types.CategoryMiddleware]))
	assert.Equal(t, []string{"APP_KEY"}, texts(set[types.CategoryEnv]))
	assert.True(t, set[types.CategoryEnv][0].HasDefault)
	assert.Equal(t, []string{"Mailer"}, texts(set[types.CategoryBinding]))
	assert.Equal(t, "class", set[types.CategoryBinding][0].Detail)
	assert.Equal(t, []string{"home.index"}, texts(set[types.CategoryView]))
	assert.Equal(t, []string{"app.name"}, texts(set[types.CategoryConfig]))
	assert.Empty(t, set[types.CategoryDirective])

	assert.Equal(t, posOf(t, controllerSource, "APP_KEY", 0), set[types.CategoryEnv][0].Start)
	assert.Equal(t, posOf(t, controllerSource, "home.index", 0), set[types.CategoryView][0].Start)
}

func TestStructuredPHPFacades(t *testing.T) {
	content := "<?php\nuse Illuminate\\Support\\Facades\\View;\n$v = View::make('emails.order');\n$c = \\Config::get('mail.from');\nRoute::middleware('throttle')->group(fn () => null);\n"
	set, err := NewStructuredStrategy(10).Extract([]byte(content), filetype.PHP)
	require.NoError(t, err)

	assert.Equal(t, []string{"emails.order"}, texts(set[types.CategoryView]))
	assert.Equal(t, "View::make", set[types.CategoryView][0].Detail)
	assert.Equal(t, []string{"mail.from"}, texts(set[types.CategoryConfig]))
	assert.Equal(t, []string{"throttle"}, texts(set[types.CategoryMiddleware]))
}

func TestStructuredUnsupported(t *testing.T) {
	_, err := NewStructuredStrategy(10).Extract([]byte("console.log(1)"), filetype.Unknown)
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestStructuredConcurrent(t *testing.T) {
	s := NewStructuredStrategy(10)
	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			set, err := s.Extract([]byte(layoutTemplate), filetype.Blade)
			if err != nil {
				errs <- err
				return
			}
			if got := len(set[types.CategoryDirective]); got != 3 {
				errs <- fmt.Errorf("goroutine %d: want 3 directives, got %d", i, got)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	assert.Equal(t, int64(0), s.php.leased.Load())
	assert.Equal(t, int64(0), s.html.leased.Load())
}
